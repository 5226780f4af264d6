// Package files discovers dataset input files on disk.
//
// Discovery lists readable inputs (CSV, space separated .dat, gzip and
// .xlsx files) under a base directory and reports their sizes in human
// units.
package files
