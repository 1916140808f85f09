// Package exporter keeps a bounded history of finished operations and
// writes it out as CSV or XLSX.
//
// History: subscribes to operation completion events and retains the most
// recent terminal snapshots, so reports outlive the registry's purge.
//
// CSV and XLSX writers share one column set, so a history downloaded in
// either format has the same shape.
//
// Example usage:
//
//	history := exporter.NewHistory(500)
//	history.Attach(manager.Events())
//	defer history.Stop()
//
//	err := exporter.WriteCSV(w, history.Snapshot(), exporter.CSVOptions{BOMPrefix: true})
package exporter
