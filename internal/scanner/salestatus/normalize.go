// Package salestatus normalizes each platform's native sale-status
// vocabulary into the common domain.SaleStatus enum (spec §7). Every
// platform keeps sold_out distinct from off_sale rather than collapsing
// the two — see DESIGN.md's "Open Question decisions".
package salestatus

import "github.com/scanflow/platform/internal/domain"

// Normalize maps a platform's native status string, lower-cased and
// trimmed by the caller, to the common vocabulary. Unknown native values
// fall back to off_sale: an upstream site returning a status this system
// has never seen is closer to "not currently purchasable" than "on sale".
func Normalize(platform domain.Platform, native string) domain.SaleStatus {
	switch platform {
	case domain.PlatformOliveYoung:
		return normalizeOliveYoung(native)
	case domain.PlatformHwahae:
		return normalizeHwahae(native)
	case domain.PlatformMusinsa:
		return normalizeMusinsa(native)
	case domain.PlatformAbly:
		return normalizeAbly(native)
	case domain.PlatformKurly:
		return normalizeKurly(native)
	case domain.PlatformZigzag:
		return normalizeZigzag(native)
	default:
		return domain.OffSale
	}
}

func normalizeOliveYoung(native string) domain.SaleStatus {
	switch native {
	case "normal", "sale":
		return domain.OnSale
	case "soldout", "sold_out":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}

func normalizeHwahae(native string) domain.SaleStatus {
	switch native {
	case "on_sale", "selling":
		return domain.OnSale
	case "sold_out", "out_of_stock":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}

func normalizeMusinsa(native string) domain.SaleStatus {
	switch native {
	case "sale", "on_sale":
		return domain.OnSale
	case "soldout":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}

func normalizeAbly(native string) domain.SaleStatus {
	switch native {
	case "selling", "on_sale":
		return domain.OnSale
	case "sold_out", "temp_sold_out":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}

func normalizeKurly(native string) domain.SaleStatus {
	switch native {
	case "sale":
		return domain.OnSale
	case "soldout", "sold_out":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}

func normalizeZigzag(native string) domain.SaleStatus {
	switch native {
	case "on_sale", "normal":
		return domain.OnSale
	case "sold_out":
		return domain.SoldOut
	default:
		return domain.OffSale
	}
}
