package domain

// KnowledgeDocument is one record of the skincare dataset.
type KnowledgeDocument struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title,omitempty"`
	Name        string         `json:"name,omitempty"`
	Brand       string         `json:"brand,omitempty"`
	Category    string         `json:"category,omitempty"`
	Step        *int           `json:"step,omitempty"`
	UsageTime   []string       `json:"usage_time,omitempty"`
	RemovesSPF  *bool          `json:"removes_spf,omitempty"`
	Source      string         `json:"source,omitempty"`
	Text        string         `json:"text,omitempty"`
	HowToUse    string         `json:"how_to_use,omitempty"`
	About       string         `json:"about,omitempty"`
	Ingredients string         `json:"ingredients,omitempty"`
	Composition string         `json:"composition,omitempty"`
	Concerns    []string       `json:"concerns,omitempty"`
	SkinType    []string       `json:"skin_type,omitempty"`
	Steps       []string       `json:"steps,omitempty"`
	AgeRange    string         `json:"age_range,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// DisplayTitle prefers the title and falls back to the product name.
func (d KnowledgeDocument) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}
