package model

// Category is a closed vocabulary of expense categories. The analysis
// backend is instructed to answer with one of these values; anything
// else collapses to CategoryOther.
type Category string

const (
	// CategoryFood covers meals, groceries, and dining out.
	CategoryFood Category = "food"
	// CategoryTransport covers taxis, transit, fuel, and parking.
	CategoryTransport Category = "transport"
	// CategoryShopping covers general retail purchases.
	CategoryShopping Category = "shopping"
	// CategoryEntertainment covers movies, games, and leisure.
	CategoryEntertainment Category = "entertainment"
	// CategoryHousing covers rent, mortgage, and home maintenance.
	CategoryHousing Category = "housing"
	// CategoryUtilities covers water, electricity, and gas bills.
	CategoryUtilities Category = "utilities"
	// CategoryMedical covers healthcare, pharmacy, and insurance.
	CategoryMedical Category = "medical"
	// CategoryEducation covers tuition, books, and courses.
	CategoryEducation Category = "education"
	// CategoryTravel covers flights, hotels, and trips.
	CategoryTravel Category = "travel"
	// CategoryCommunication covers phone and internet service.
	CategoryCommunication Category = "communication"
	// CategorySubscription covers recurring digital services.
	CategorySubscription Category = "subscription"
	// CategoryOther is the fallback for anything unmatched.
	CategoryOther Category = "other"
)

// categoryLabels maps each category to its display label. Labels are part
// of the vocabulary: the analysis backend may answer with either form.
var categoryLabels = map[Category]string{
	CategoryFood:          "餐饮",
	CategoryTransport:     "交通",
	CategoryShopping:      "购物",
	CategoryEntertainment: "娱乐",
	CategoryHousing:       "住房",
	CategoryUtilities:     "水电",
	CategoryMedical:       "医疗",
	CategoryEducation:     "教育",
	CategoryTravel:        "旅行",
	CategoryCommunication: "通讯",
	CategorySubscription:  "订阅",
	CategoryOther:         "其他",
}

// Categories returns the closed vocabulary in a stable order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryShopping,
		CategoryEntertainment,
		CategoryHousing,
		CategoryUtilities,
		CategoryMedical,
		CategoryEducation,
		CategoryTravel,
		CategoryCommunication,
		CategorySubscription,
		CategoryOther,
	}
}

// Label returns the display label for the category.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return categoryLabels[CategoryOther]
}

// IsValid reports whether c is part of the closed vocabulary.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// ParseCategory matches s case-sensitively against the closed vocabulary,
// accepting either the category key or its display label. Unmatched or
// empty input returns CategoryOther.
func ParseCategory(s string) Category {
	for cat, label := range categoryLabels {
		if s == string(cat) || s == label {
			return cat
		}
	}
	return CategoryOther
}
