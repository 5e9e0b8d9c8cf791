package datapoint

import "math"

const (
	magnusB float64 = 17.62
	magnusC float64 = 243.12

	gasConstantDryAir  float64 = 287.058 // J/(kg·K)
	gasConstantWater   float64 = 461.495 // J/(kg·K)
	absoluteZeroOffset float64 = 273.15
)

// saturationVaporPressure returns the equilibrium vapour pressure over water in Pa
func saturationVaporPressure(celsius float64) float64 {
	return 611.2 * math.Exp(17.67*celsius/(celsius+243.5))
}

// dewPoint uses the Magnus approximation and returns degrees Celsius
func dewPoint(celsius, relativeHumidity float64) float64 {
	gamma := math.Log(relativeHumidity/100) + magnusB*celsius/(magnusC+celsius)
	return magnusC * gamma / (magnusB - gamma)
}

// absoluteHumidity returns the water vapour density in g/m³
func absoluteHumidity(celsius, relativeHumidity float64) float64 {
	return saturationVaporPressure(celsius) / 100 * relativeHumidity * 2.1674 / (absoluteZeroOffset + celsius)
}

// airDensity returns the density of humid air in kg/m³ given the pressure in Pa
func airDensity(celsius, relativeHumidity, pressure float64) float64 {
	kelvin := celsius + absoluteZeroOffset
	vapor := relativeHumidity / 100 * saturationVaporPressure(celsius)
	dry := pressure - vapor
	return dry/(gasConstantDryAir*kelvin) + vapor/(gasConstantWater*kelvin)
}
