// Package domain models satellite product archives and the raster events
// produced from them.
//
// # Product Names
//
// Archives follow the ground segment naming convention:
//
//	3RIMG_18JUN2024_0815_L1B_STD_V01R00.h5
//	^^^^^ ^^^^^^^^^      ^^^
//	sat   date           processing level
//
// The acquisition date is the second underscore-separated token. The product
// family is the first of L1B, L1C, L2B, L2C found anywhere in the name, checked
// in that order. Names without a family are rejected with [ErrUnknownProduct].
//
// # Families
//
//	L1B  per-band radiometric images on the native swath grid, with
//	     per-resolution latitude/longitude datasets (VIS, WV, IR).
//	L1C  per-band images already on a regular lat/lon grid, bounds in root
//	     attributes.
//	L2B  derived swath products (HEM*), resampled onto a regular grid.
//	L2C  gridded solar radiation parameters (DHI, DNI, GHI, INS).
//
// # Output Names
//
// Each written raster is named {FAMILY}_{unit}_{date}.tif, see [OutputName].
//
// # ID Generation
//
// Raster event IDs are deterministic SHA-256 hashes of family|unit|date|source
// so replays of the same product produce the same IDs. See [generateID].
package domain
