// Package query acquires OSM data from a pool of Overpass interpreters.
//
// An EndpointSelector rotates over the configured servers, an Executor runs a
// query against successive servers until one succeeds, and a Tiler splits
// oversized bounding boxes into cells that are queried one after another.
// Nothing here fans out: the public Overpass instances throttle aggressively
// and failover needs the previous outcome before the next call is issued.
//
// The builder half of the package renders Overpass QL from filter conditions.
package query
