// Package slot turns a schedule page into a set of slot records and computes
// which slots are new between two snapshots of that page.
//
// A Set maps a normalized row label (Key) to the text of the row's trailing
// marker cell (Status). Only two things are tracked between snapshots: whether
// a key is present, and whether its status is the closed marker.
package slot
