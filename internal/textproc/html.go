// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package textproc normalises raw chunk content into plain text, splits
// long documents into coarse sub-chunks for split-average embedding, and
// averages embedding vectors.
package textproc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText strips tags from html, preserving readable text. It
// operates directly on an in-memory string since job payloads arrive as
// chunk_html fields rather than files on disk.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return strings.TrimSpace(doc.Text()), nil
}
