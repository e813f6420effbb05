// Package rectify turns sensor-native swath arrays into validated, normalized
// grids ready to be written as georeferenced rasters.
//
// # Coordinates
//
// Geostationary imager products store latitude and longitude as scaled
// integers. The scale depends only on the coordinate family of the channel:
//
//	VIS (visible and shortwave infrared)  raw / 10000
//	WV  (water vapour)                    raw / 100
//	IR  (thermal, mid infrared, derived)  raw / 100
//
// Values outside [-90, 90] latitude or [-180, 180] longitude after scaling are
// fill values and become NaN. They are never clamped.
//
// # Validity
//
// A pixel is usable when its coordinates are valid, it lies on the visible
// Earth disk and its value is not the product's background fill. Each stage
// returns a new [Mask] that is the logical AND of its input and its own test,
// so validity only ever shrinks:
//
//	CoordinateMask → Disk.Mask → Background.Suppress
//
// The disk test measures the haversine distance to the sub-satellite point and
// accepts anything within a quarter of the Earth's circumference (R·π/2).
//
// The background value is not a fixed sentinel. It is discovered per channel
// as the left edge of the most populated histogram bin over the pixels that
// already passed the disk test.
//
// # Normalization and resampling
//
// [Normalize] rescales the valid population linearly to [0, 65535] and reports
// [Stats] in source units. [Resampler] maps scattered (lon, lat, value)
// samples onto a regular grid by nearest neighbour, backed by a k-d tree.
package rectify
