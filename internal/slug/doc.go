// Package slug canonicalises human-entered titles into the identifiers used
// for rooms and devices.
//
// Room keys, device IDs and every URL path segment derived from them go through
// Normalize, so "Main Hall", "main hall" and "MAIN-HALL" all name the same room.
package slug
