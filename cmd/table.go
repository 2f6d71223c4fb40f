// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Create a table writer with the given headers.
func newTableWriter(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	return table
}

// Render the rows as a table.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	table := newTableWriter(w, headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
