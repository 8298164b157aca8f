// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/robmacrae/surfbroker/internal/connection"
	"github.com/robmacrae/surfbroker/internal/model"
)

func init() {
	register("browser_get_element_styles", "Inspect the matched and applied CSS for an element, with override provenance.", `{
		"type": "object",
		"properties": {
			"selector": {"type": "string"},
			"property": {"type": "string"},
			"pseudoState": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["selector"]
	}`, handleGetElementStyles, false)
}

type stylesArgs struct {
	Selector    string   `json:"selector"`
	Property    string   `json:"property"`
	PseudoState []string `json:"pseudoState"`
}

type cssRule struct {
	Origin  string `json:"origin"`
	Style   struct {
		StyleSheetID string `json:"styleSheetId"`
		CSSProperties []struct {
			Name     string `json:"name"`
			Value    string `json:"value"`
			Important bool  `json:"important"`
			Disabled bool   `json:"disabled"`
		} `json:"cssProperties"`
		Range *struct {
			StartLine int `json:"startLine"`
		} `json:"range"`
	} `json:"style"`
	Selectors struct {
		Text string `json:"text"`
	} `json:"selectorList"`
}

type matchedStylesResponse struct {
	InlineStyle *struct {
		CSSProperties []struct {
			Name      string `json:"name"`
			Value     string `json:"value"`
			Important bool   `json:"important"`
			Disabled  bool   `json:"disabled"`
		} `json:"cssProperties"`
	} `json:"inlineStyle"`
	MatchedCSSRules []struct {
		Rule cssRule `json:"rule"`
	} `json:"matchedCSSRules"`
}

type propertyEntry struct {
	Value      string `json:"value"`
	Source     string `json:"source"`
	Selector   string `json:"selector"`
	Important  bool   `json:"important"`
	Disabled   bool   `json:"disabled"`
	Status     string `json:"status"` // applied | overridden | computed
}

var hashedAssetRe = regexp.MustCompile(`-[0-9a-f]{6,}(\.[a-zA-Z0-9]+)$`)

func handleGetElementStyles(ctx context.Context, hc *connection.HandlerContext, args json.RawMessage, rawResult bool) model.ToolResult {
	var a stylesArgs
	if err := decode(args, &a); err != nil {
		return fromError(err)
	}

	nodeID, err := resolveNodeID(ctx, hc, a.Selector)
	if err != nil {
		return fromError(err)
	}

	if len(a.PseudoState) > 0 {
		if _, err := hc.CDP.CDP(ctx, "CSS.forcePseudoState", map[string]interface{}{
			"nodeId": nodeID, "forcedPseudoClasses": a.PseudoState,
		}); err != nil {
			return fromError(err)
		}
		defer func() {
			_, _ = hc.CDP.CDP(ctx, "CSS.forcePseudoState", map[string]interface{}{
				"nodeId": nodeID, "forcedPseudoClasses": []string{},
			})
		}()
	}

	stylesheetHref, _ := firstStylesheetHref(ctx, hc)

	raw, err := hc.CDP.CDP(ctx, "CSS.getMatchedStylesForNode", map[string]interface{}{"nodeId": nodeID})
	if err != nil {
		return fromError(err)
	}
	var resp matchedStylesResponse
	if err := unmarshalInto(raw, &resp); err != nil {
		return fromError(err)
	}

	entries := collectPropertyEntries(resp, stylesheetHref)
	if a.Property != "" {
		filtered := map[string][]propertyEntry{}
		key := strings.ToLower(a.Property)
		if v, ok := entries[key]; ok {
			filtered[key] = v
		}
		entries = filtered
	}

	if rawResult {
		return model.ToolResult{Raw: entries}
	}
	return model.TextResult(formatStyleEntries(entries))
}

func firstStylesheetHref(ctx context.Context, hc *connection.HandlerContext) (string, error) {
	v, err := hc.CDP.Eval(ctx, `(function(){
		var l = document.querySelector('link[rel="stylesheet"]');
		return l ? l.href : "";
	})()`, false)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func collectPropertyEntries(resp matchedStylesResponse, stylesheetHref string) map[string][]propertyEntry {
	entries := map[string][]propertyEntry{}

	appendEntry := func(key string, e propertyEntry) {
		entries[key] = append(entries[key], e)
	}

	for _, m := range resp.MatchedCSSRules {
		rule := m.Rule
		source := ruleSource(rule, stylesheetHref)
		selector := rule.Selectors.Text
		if rule.Origin == "user-agent" {
			selector = ""
		}
		for _, p := range rule.Style.CSSProperties {
			key := strings.ToLower(p.Name)
			appendEntry(key, propertyEntry{
				Value: p.Value, Source: source, Selector: selector,
				Important: p.Important, Disabled: p.Disabled,
			})
		}
	}

	if resp.InlineStyle != nil {
		for _, p := range resp.InlineStyle.CSSProperties {
			key := strings.ToLower(p.Name)
			appendEntry(key, propertyEntry{
				Value: p.Value, Source: "inline", Selector: "element.style",
				Important: p.Important, Disabled: p.Disabled,
			})
		}
	}

	for key, list := range entries {
		entries[key] = markStatuses(list)
	}
	return entries
}

func ruleSource(rule cssRule, stylesheetHref string) string {
	if rule.Origin == "user-agent" {
		return "browser default"
	}
	line := 1
	if rule.Style.Range != nil {
		line = rule.Style.Range.StartLine + 1
	}
	if rule.Style.StyleSheetID == "" || stylesheetHref == "" {
		return fmt.Sprintf("stylesheet:%d", line)
	}
	base := path.Base(stylesheetHref)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = hashedAssetRe.ReplaceAllString(base, "$1")
	return fmt.Sprintf("%s:%d", base, line)
}

// markStatuses implements the applied/overridden/computed rule from the
// styles spec: inline style and cascaded order both land in `list` in the
// order CDP reports them (later entries win, per CSS cascade). The last
// `!important` declaration, if any, always wins; otherwise the last plain
// declaration wins. Only the winner is marked "applied". Earlier entries
// with the winner's source, selector and importance but a different value
// are "computed", and so is
// any other `!important` entry (it never loses outright — it just isn't
// the winner). Everything else is "overridden".
func markStatuses(list []propertyEntry) []propertyEntry {
	plainIdx := -1
	importantIdx := -1
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Important {
			if importantIdx == -1 {
				importantIdx = i
			}
		} else if plainIdx == -1 {
			plainIdx = i
		}
	}
	winnerIdx := plainIdx
	if importantIdx >= 0 {
		winnerIdx = importantIdx
	}
	for i := range list {
		switch {
		case i == winnerIdx:
			list[i].Status = "applied"
		case i < winnerIdx && list[i].Source == list[winnerIdx].Source &&
			list[i].Selector == list[winnerIdx].Selector &&
			list[i].Important == list[winnerIdx].Important && list[i].Value != list[winnerIdx].Value:
			list[i].Status = "computed"
		case list[i].Important:
			list[i].Status = "computed"
		default:
			list[i].Status = "overridden"
		}
	}
	return list
}

func formatStyleEntries(entries map[string][]propertyEntry) string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:\n", k)
		for _, e := range entries[k] {
			fmt.Fprintf(&b, "  [%s] %s (%s", e.Status, e.Value, e.Source)
			if e.Selector != "" {
				fmt.Fprintf(&b, " %s", e.Selector)
			}
			if e.Important {
				b.WriteString(" !important")
			}
			b.WriteString(")\n")
		}
	}
	return b.String()
}
