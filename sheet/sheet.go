// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
)

// ExportURL converts a Google Sheets share link into the spreadsheet's CSV
// export endpoint. The spreadsheet ID is the second-to-last path segment of
// the share link (".../d/<id>/edit").
func ExportURL(shareURL string) (string, error) {
	parts := strings.Split(strings.TrimRight(shareURL, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("not a spreadsheet link: %q", shareURL)
	}

	id := parts[len(parts)-2]
	if id == "" || id == "d" || strings.Contains(id, ".") {
		return "", fmt.Errorf("no spreadsheet ID in %q", shareURL)
	}

	return "https://docs.google.com/spreadsheets/d/" + id + "/gviz/tq?tqx=out:csv", nil
}

// FetchCSV downloads the CSV export of a shared Google Sheet and returns its
// records. A nil client falls back to http.DefaultClient.
func FetchCSV(ctx context.Context, client *http.Client, shareURL string) ([][]string, error) {
	exportURL, err := ExportURL(shareURL)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheet request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheet export returned %s", resp.Status)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse sheet CSV: %w", err)
	}

	return records, nil
}
