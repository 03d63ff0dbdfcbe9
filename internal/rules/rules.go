// Package rules holds the category and stock business logic applied to
// webhook events: which products to ignore, when a depleted stock means the
// product sold out, and how sequential codes are derived from categories.
package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blingmon/internal/model"
)

var excludedCategories = map[string]bool{
	"notebook": true,
	"sff":      true,
	"mini":     true,
	"monitor":  true,
}

var ignoredSubcategories = map[string]bool{
	"submaquina": true,
}

// CategoryInfo is the parsed category hierarchy of a product.
type CategoryInfo struct {
	Category    string
	Subcategory string
	Full        string
	ID          int64
}

// ExtractCategoryInfo splits the remote category name, which encodes the
// hierarchy as "Category >> Subcategory".
func ExtractCategoryInfo(p model.Product) CategoryInfo {
	if p.Categoria == nil {
		return CategoryInfo{}
	}
	full := p.Categoria.Nome
	info := CategoryInfo{Category: full, Full: full, ID: p.Categoria.ID}
	if strings.Contains(full, ">>") {
		parts := strings.Split(full, ">>")
		info.Category = strings.TrimSpace(parts[0])
		info.Subcategory = strings.TrimSpace(parts[len(parts)-1])
	}
	return info
}

// ShouldIgnoreProduct reports whether the product's category places it
// outside the automated stock rules, with a human-readable reason.
func ShouldIgnoreProduct(p model.Product) (bool, string) {
	info := ExtractCategoryInfo(p)
	if excludedCategories[strings.ToLower(info.Category)] {
		return true, fmt.Sprintf("excluded category: %s", info.Category)
	}
	if info.Subcategory != "" && ignoredSubcategories[strings.ToLower(info.Subcategory)] {
		return true, fmt.Sprintf("ignored subcategory: %s", info.Subcategory)
	}
	return false, ""
}

var accentFolder = strings.NewReplacer(
	"ã", "a", "á", "a", "à", "a", "â", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"õ", "o", "ó", "o", "ô", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// CategoryPrefix derives the code prefix from a category name:
// "Teclado Mouse" -> "TEMO", "Monitor" -> "MONI".
func CategoryPrefix(name string) string {
	clean := accentFolder.Replace(strings.ToLower(name))
	parts := strings.Fields(clean)
	var prefix string
	if len(parts) > 1 {
		prefix = take(parts[0], 2) + take(parts[1], 2)
	} else if len(parts) == 1 {
		prefix = take(parts[0], 4)
	}
	return strings.ToUpper(prefix)
}

func take(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// CodeDecision is the outcome of ShouldGenerateCode.
type CodeDecision struct {
	Generate bool
	Reason   string
	Prefix   string
}

// ShouldGenerateCode decides whether a product needs a sequential code and
// which prefix to use. Notebook-class categories collapse into "NTB"; parts
// ("pecas") take their prefix from the subcategory.
func ShouldGenerateCode(p model.Product) CodeDecision {
	if p.Codigo != "" {
		return CodeDecision{Reason: "already has a code"}
	}
	info := ExtractCategoryInfo(p)
	if info.Category == "" {
		return CodeDecision{Reason: "no category"}
	}
	cat := strings.ToLower(info.Category)
	sub := strings.ToLower(info.Subcategory)

	if sub == "submaquina" || cat == "submaquina" {
		return CodeDecision{Reason: "submaquina is ignored"}
	}
	if cat == "notebook" || cat == "mini" || cat == "sff" {
		return CodeDecision{Generate: true, Reason: "category " + info.Category, Prefix: "NTB"}
	}
	if strings.Contains(cat, "peca") {
		if info.Subcategory == "" {
			return CodeDecision{Reason: "part without subcategory"}
		}
		return CodeDecision{Generate: true, Reason: "part subcategory " + info.Subcategory, Prefix: CategoryPrefix(info.Subcategory)}
	}
	return CodeDecision{Generate: true, Reason: "category " + info.Category, Prefix: CategoryPrefix(info.Category)}
}

// StockAPI is the slice of the Bling client the depletion check needs.
type StockAPI interface {
	GetStockMovements(ctx context.Context, productID int64, startDate, endDate string) ([]model.StockMovement, error)
}

// DepletionDetails explains a StockDepletedBySales verdict.
type DepletionDetails struct {
	Reason     string
	Entries    float64
	SalesExits float64
}

var saleKeywords = []string{"venda", "pedido", "nfe", "nota fiscal"}

// StockDepletedBySales reports whether the product's stock reached zero
// specifically through sales: it had entries over the last year and the
// sale-tagged exits consumed exactly all of them.
func StockDepletedBySales(ctx context.Context, api StockAPI, productID int64) (bool, DepletionDetails, error) {
	end := time.Now().Format("2006-01-02")
	start := time.Now().AddDate(-1, 0, 0).Format("2006-01-02")

	movements, err := api.GetStockMovements(ctx, productID, start, end)
	if err != nil {
		return false, DepletionDetails{Reason: "movement lookup failed"}, err
	}
	if len(movements) == 0 {
		return false, DepletionDetails{Reason: "no movements (never had an entry)"}, nil
	}

	var entries, salesExits float64
	for _, mov := range movements {
		switch mov.Tipo {
		case "E":
			entries += mov.Quantidade
		case "S":
			op := strings.ToLower(mov.Operacao)
			for _, kw := range saleKeywords {
				if strings.Contains(op, kw) {
					salesExits += mov.Quantidade
					break
				}
			}
		}
	}

	d := DepletionDetails{Entries: entries, SalesExits: salesExits}
	if entries > 0 && entries == salesExits {
		d.Reason = "stock depleted by sales"
		return true, d, nil
	}
	if entries > 0 {
		d.Reason = "entries do not match sale exits"
	} else {
		d.Reason = "no entries"
	}
	return false, d, nil
}
