// Package units provides shared constants and conversions for area units.
package units

// Unit constants. The database stores hotspot areas in hectares.
const (
	HA  = "ha"
	M2  = "m2"
	KM2 = "km2"
)

// SquareMetersPerHectare is the number of square meters in one hectare.
const SquareMetersPerHectare = 10000.0

// ValidUnits contains all valid area unit values
var ValidUnits = []string{HA, M2, KM2}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ha, m2, km2"
}

// ConvertArea converts an area from hectares to the target units
func ConvertArea(areaHa float64, targetUnits string) float64 {
	switch targetUnits {
	case M2:
		return areaHa * SquareMetersPerHectare
	case KM2:
		return areaHa / 100 // 100 ha per km²
	case HA:
		return areaHa // no conversion needed
	default:
		return areaHa // default to hectares if unknown unit
	}
}

// SquareMetersToHectares converts an area in square meters to hectares.
func SquareMetersToHectares(m2 float64) float64 {
	return m2 / SquareMetersPerHectare
}
