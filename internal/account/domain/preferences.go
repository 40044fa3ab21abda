package domain

// MaxStylePreferences caps how many styles an account may select.
const MaxStylePreferences = 3

// StylePreference is one of the fixed onboarding style choices.
type StylePreference string

const (
	StyleMinimal    StylePreference = "minimal"
	StyleStreet     StylePreference = "street"
	StyleBohemian   StylePreference = "bohemian"
	StyleLuxury     StylePreference = "luxury"
	StyleAvantGarde StylePreference = "avant_garde"
	StyleLovely     StylePreference = "lovely"
	StyleVintage    StylePreference = "vintage"
	StyleSporty     StylePreference = "sporty"
	StyleModern     StylePreference = "modern"
	StyleGrunge     StylePreference = "grunge"
	StylePreppy     StylePreference = "preppy"
)

var validStyles = map[StylePreference]bool{
	StyleMinimal: true, StyleStreet: true, StyleBohemian: true, StyleLuxury: true,
	StyleAvantGarde: true, StyleLovely: true, StyleVintage: true, StyleSporty: true,
	StyleModern: true, StyleGrunge: true, StylePreppy: true,
}

// Valid reports whether s is a known style.
func (s StylePreference) Valid() bool { return validStyles[s] }

// Size is a garment size used by onboarding.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	switch s {
	case SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL:
		return true
	}
	return false
}

// ValidateStyles rejects unknown styles, duplicates, and more than MaxStylePreferences entries.
func ValidateStyles(styles []StylePreference) error {
	if len(styles) > MaxStylePreferences {
		return ErrTooManyStyles
	}
	seen := make(map[StylePreference]bool, len(styles))
	for _, s := range styles {
		if !s.Valid() {
			return ErrInvalidStyle
		}
		if seen[s] {
			return ErrInvalidStyle
		}
		seen[s] = true
	}
	return nil
}
