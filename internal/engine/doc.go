// Package engine implements the backend interfaces against in-memory
// data: a vector engine over loaded region geometries and a raster
// engine over gridded datasets. Geometry is planar math on a local
// equirectangular projection, which is accurate to well under a percent
// at the village scales this tool works at. A remote backend can replace
// either half without touching the analysis core.
package engine
