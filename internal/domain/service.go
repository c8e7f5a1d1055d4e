package domain

// Service — пункт каталога услуг вместе с уточняющим вопросом для шага "детали".
type Service struct {
	Label         string
	DetailsPrompt string
}

// Catalog — фиксированный упорядоченный список услуг; индекс используется в кнопках.
type Catalog []Service

func (c Catalog) Lookup(index int) (Service, bool) {
	if index < 0 || index >= len(c) {
		return Service{}, false
	}
	return c[index], true
}

func (c Catalog) Labels() []string {
	out := make([]string, 0, len(c))
	for _, s := range c {
		out = append(out, s.Label)
	}
	return out
}
