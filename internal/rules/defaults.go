package rules

// DefaultCategories returns the starter category table written by init.
// The "ignore" rule hides card payments and transfers between own accounts.
func DefaultCategories() Set {
	return Set{
		{ID: 0, Label: "supermercado", Keywords: []string{"coto", "carrefour", "dia tienda", "jumbo"}},
		{ID: 1, Label: "transporte", Keywords: []string{"sube", "uber", "cabify", "ypf", "shell"}},
		{ID: 2, Label: "servicios", Keywords: []string{"edesur", "edenor", "metrogas", "aysa", "personal", "movistar"}},
		{ID: 3, Label: "suscripciones", Keywords: []string{"netflix", "spotify", "google", "youtube"}},
		{ID: 4, Label: "ignore", Keywords: []string{}},
	}
}

// DefaultAliases returns an empty alias table.
func DefaultAliases() Set {
	return Set{}
}
