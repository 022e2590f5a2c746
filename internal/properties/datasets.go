package properties

import "fmt"

// Dataset is one variable to extract.
type Dataset struct {
	// Collection is the remote image collection id.
	Collection string `koanf:"collection" validate:"required"`
	// Band is the band to reduce. Empty keeps every band of the collection.
	Band string `koanf:"band"`
	// Bands are the columns an all-band extraction always writes, NA when
	// the remote returns no value for them.
	Bands  []string `koanf:"bands" validate:"dive,required"`
	Scale  float64  `koanf:"scale" validate:"gt=0"`
	Output string   `koanf:"output" validate:"required"`
	Title  string   `koanf:"title"`
}

// hycomDepths are the depth levels, in metres, of the HYCOM temperature and
// salinity bands.
var hycomDepths = []int{
	0, 2, 4, 6, 8, 10, 12, 15, 20, 25, 30, 35, 40, 45, 50, 60, 70, 80, 90, 100,
	125, 150, 200, 250, 300, 350, 400, 500, 600, 700, 800, 900, 1000, 1250,
	1500, 2000, 2500, 3000, 4000, 5000,
}

func hycomBands(variables ...string) []string {
	bands := make([]string, 0, len(variables)*len(hycomDepths))
	for _, v := range variables {
		for _, d := range hycomDepths {
			bands = append(bands, fmt.Sprintf("%s_%d", v, d))
		}
	}
	return bands
}

// Presets are the variables extracted for the Sundarbans study.
func Presets() map[string]Dataset {
	return map[string]Dataset{
		"ndvi": {
			Collection: "MODIS/006/MOD13A2",
			Band:       "NDVI",
			Scale:      1000,
			Output:     "sundarban_ndvi.csv",
			Title:      "NDVI",
		},
		"air_temperature": {
			Collection: "ECMWF/ERA5/DAILY",
			Band:       "mean_2m_air_temperature",
			Scale:      27830,
			Output:     "temperature_data.csv",
			Title:      "Mean 2 m air temperature (K)",
		},
		"precipitation": {
			Collection: "ECMWF/ERA5/DAILY",
			Band:       "total_precipitation",
			Scale:      27830,
			Output:     "precipitation_data.csv",
			Title:      "Total precipitation (m)",
		},
		"sea_surface_elevation": {
			Collection: "HYCOM/sea_surface_elevation",
			Band:       "surface_elevation",
			Scale:      8905.6,
			Output:     "sea_surface_anomaly_data.csv",
			Title:      "Sea surface elevation",
		},
		"sea_temp_salinity": {
			Collection: "HYCOM/sea_temp_salinity",
			Bands:      hycomBands("salinity", "water_temp"),
			Scale:      8905.6,
			Output:     "sea_temp_salinity_data.csv",
			Title:      "Sea temperature and salinity",
		},
	}
}
