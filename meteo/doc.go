// Package meteo provides a client for the MET Norway Location Forecast API.
//
// The PV forecast uses it as a cloud-cover source: MET Norway does not
// publish irradiance, so air temperature and cloud area fraction are read
// from the forecast and turned into irradiance by the solar package.
//
//	client := meteo.NewClient("pvyield/1.0 (ops@example.com)")
//
//	forecast, err := client.GetCompact(ctx, meteo.QueryParams{
//		Location: meteo.Location{Latitude: 50.6, Longitude: 6.3},
//	})
//	if err != nil {
//		return err
//	}
//
//	for _, step := range forecast.GetForecastForPeriod(start, end) {
//		temp := step.GetTemperature()
//		cloud := step.GetCloudCoverage()
//		...
//	}
//
// MET Norway requires an identifying User-Agent on every request, see
// https://api.met.no/weatherapi/locationforecast/2.0/documentation
package meteo
