package catalogue

import "uqconnect/internal/model"

// Defaults returns the catalogue written on first run.
func Defaults() []model.CatalogueEvent {
	return []model.CatalogueEvent{
		{
			ID:          "1",
			Title:       "UQ Engineering Career Fair",
			Description: "Meet with top engineering companies and explore career opportunities",
			Date:        "2025-11-15",
			Time:        "10:00",
			Duration:    180,
			Location:    "UQ Centre",
			Category:    model.CategoryCareer,
			Type:        "In-person",
			Capacity:    200,
			Registered:  45,
		},
		{
			ID:          "2",
			Title:       "Python Programming Workshop",
			Description: "Learn advanced Python concepts and best practices",
			Date:        "2025-11-18",
			Time:        "14:00",
			Duration:    120,
			Location:    "Computer Science Building",
			Category:    model.CategoryWorkshop,
			Type:        "In-person",
			Capacity:    30,
			Registered:  12,
		},
		{
			ID:          "3",
			Title:       "UQ Student Society Networking",
			Description: "Connect with fellow students and join various societies",
			Date:        "2025-11-20",
			Time:        "18:00",
			Duration:    150,
			Location:    "Student Union Building",
			Category:    model.CategorySocial,
			Type:        "In-person",
			Capacity:    100,
			Registered:  67,
		},
		{
			ID:          "4",
			Title:       "Research Methods Seminar",
			Description: "Learn about research methodologies and academic writing",
			Date:        "2025-11-22",
			Time:        "16:00",
			Duration:    90,
			Location:    "Library Seminar Room",
			Category:    model.CategoryAcademic,
			Type:        "Hybrid",
			Capacity:    50,
			Registered:  23,
		},
		{
			ID:          "5",
			Title:       "Mental Health Awareness Week",
			Description: "Workshops and activities focused on student wellbeing",
			Date:        "2025-11-25",
			Time:        "09:00",
			Duration:    480,
			Location:    "Various Locations",
			Category:    model.CategoryWellness,
			Type:        "In-person",
			Capacity:    500,
			Registered:  156,
		},
	}
}
