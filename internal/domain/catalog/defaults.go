package catalog

// DefaultCompetencies seeds an empty catalog.
func DefaultCompetencies() []Input {
	questions := []struct {
		category string
		text     string
	}{
		{"Technical Skills", "How well does the employee apply technical knowledge to deliver project work?"},
		{"Communication", "How clearly does the employee share information with the team and stakeholders?"},
		{"Problem Solving", "How effectively does the employee analyse problems and drive them to resolution?"},
		{"Teamwork", "How well does the employee collaborate and support teammates?"},
		{"Leadership", "How often does the employee take initiative and guide others?"},
		{"Adaptability", "How well does the employee handle changing priorities and requirements?"},
		{"Time Management", "How reliably does the employee meet commitments and deadlines?"},
		{"Quality Focus", "How consistently does the employee deliver work that meets quality standards?"},
	}

	out := make([]Input, 0, len(questions))
	for i, q := range questions {
		order := i + 1
		active := true
		out = append(out, Input{Text: q.text, Category: q.category, OrderIndex: &order, IsActive: &active})
	}
	return out
}
