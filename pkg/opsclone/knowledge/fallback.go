package knowledge

import (
	"strings"
	"time"
)

// corpusDate stamps the built-in reference documents.
var corpusDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// FallbackCorpus returns the built-in reference documents used when the
// document store is unconfigured or unreachable. Each call returns a fresh
// slice.
func FallbackCorpus() []Document {
	return []Document{
		{
			ID:          "fallback-1",
			Title:       "Gtext Holdings Leadership Philosophy and Core Values",
			Content:     `Bukola Lukan Leadership Mantra: "Bukola, lead right, and the people will follow." Leadership Philosophy: A confident woman radiates quiet strength, not through volume, but through clarity, emotional intelligence, and decisiveness. Loyalty must be modeled from the top before it can be expected from others. Leadership is not about aggression; it is about assertiveness. We are privileged shepherds, entrusted with guiding people toward purpose. Core Values: Energy, Excellence, Integrity, Innovation, Punctuality, Proactiveness, Good Leadership. Personality Traits for all leaders: Selflessness, Positivity, Innovation & Creativity, Integrity, Excellence, Loyalty.`,
			Type:        string(KindPolicy),
			Department:  "Operations",
			Author:      "Bukola Lukan",
			AccessLevel: "public",
			CreatedAt:   corpusDate,
			UpdatedAt:   corpusDate,
			Active:      true,
		},
		{
			ID:          "fallback-2",
			Title:       "Gtext Holdings Leadership and Subsidiaries Overview",
			Content:     `Gtext Holdings Leadership: Stephen Akintayo is our visionary Chairman and founder, leading our global expansion. As GCOO, I work directly with Stephen to execute our strategic vision across all subsidiaries. Gtext Holdings operates globally with subsidiaries across Nigeria, Dubai, Doha, and USA: 1) Stephen Akintayo Foundation - Educational empowerment and investment coaching, helping people build wealth through knowledge 2) Gtext and Associates - Agent network raising 100,000 billionaires yearly through real estate partnerships 3) Gtext Suites - Dubai/Doha residency programs, golden visa, zero VAT properties 4) Gtext Land - Goal of 25,000 luxury serviced plots by 2035 across 200 estates, land banking from ₦5M 5) Gtext Homes - Luxury smart/green estates, largest global developer vision 6) Gtext Farms - Agribusiness, food security, wealth creation 7) Gtext Media - Content creation to increase visibility and property sales 8) Gvest - Fractional real estate investment platform, target 200,000 investors by 2027, ROI 14-26% annually. Stephen Akintayo leads with vision, and I ensure operational excellence across all these ventures.`,
			Type:        string(KindProcedure),
			Department:  "Operations",
			Author:      "Bukola Lukan",
			AccessLevel: "public",
			CreatedAt:   corpusDate,
			UpdatedAt:   corpusDate,
			Active:      true,
		},
		{
			ID:          "fallback-3",
			Title:       "Executive Decision Framework - Bukola Lukan Style",
			Content:     `Decision-making approach aligned with Bukola Lukan philosophy: 1) Make decisive calls based on logic, performance data, and organizational goals 2) Do not micromanage but always follow up for accountability 3) Focus on solutions, not blame 4) Align all decisions with Chairman vision and group strategy 5) Prioritize people development and operational excellence. Emergency response: Remain calm, diplomatic, factual. Avoid blame, focus on solutions, end with actionable resolution steps. For underperformance: "Take ownership, be responsible" - clear, supportive accountability.`,
			Type:        string(KindPolicy),
			Department:  "Operations",
			Author:      "Bukola Lukan",
			AccessLevel: "executive",
			CreatedAt:   corpusDate,
			UpdatedAt:   corpusDate,
			Active:      true,
		},
		{
			ID:          "fallback-4",
			Title:       "Communication Standards and Response Templates",
			Content:     `Bukola Lukan Communication Style: Speak with calm confidence and quiet authority. Use phrases: "Let us lead right", "Take ownership, be responsible". Do not confuse noise for impact - focus on execution, consistency, integrity. Address people warmly but with clear expectations. End with actionable next steps and timelines. Response Patterns: For delays/problems - address proactively, request specifics with deadlines. For new team members - welcome warmly, set clear expectations about growth and impact. For meetings - focus on purpose, value-add, alignment with vision. For wins - acknowledge process and people, reinforce that success comes from leading right.`,
			Type:        string(KindGuideline),
			Department:  "Operations",
			Author:      "Bukola Lukan",
			AccessLevel: "management",
			CreatedAt:   corpusDate,
			UpdatedAt:   corpusDate,
			Active:      true,
		},
	}
}

// MatchFallback returns up to limit documents whose title or content contains
// the query, compared case-insensitively. An empty query matches nothing.
func MatchFallback(corpus []Document, query string, limit int) []Document {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	var out []Document
	for _, doc := range corpus {
		if strings.Contains(strings.ToLower(doc.Content), q) ||
			strings.Contains(strings.ToLower(doc.Title), q) {
			out = append(out, doc)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}
