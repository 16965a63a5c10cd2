package peerreview

import (
	"fmt"
	"math"
	"strings"
)

const noReviewsSummary = "No peer reviews available for this evaluation."

// Summarize folds an evaluation's peer reviews into averages and the
// collected free-text feedback.
func Summarize(evaluationID string, reviews []PeerReview) Summary {
	out := Summary{
		EvaluationID: evaluationID,
		ReviewCount:  len(reviews),
		Strengths:    []string{},
		Weaknesses:   []string{},
		Suggestions:  []string{},
	}
	if len(reviews) == 0 {
		out.Summary = noReviewsSummary
		return out
	}

	var collaboration, communication, technical, leadership, overall []int
	for _, r := range reviews {
		collaboration = appendSet(collaboration, r.Collaboration)
		communication = appendSet(communication, r.Communication)
		technical = appendSet(technical, r.Technical)
		leadership = appendSet(leadership, r.Leadership)
		overall = appendSet(overall, r.OverallRating)
		out.Strengths = appendText(out.Strengths, r.Strengths)
		out.Weaknesses = appendText(out.Weaknesses, r.Weaknesses)
		out.Suggestions = appendText(out.Suggestions, r.Suggestions)
	}
	out.Averages = Averages{
		Collaboration: average(collaboration),
		Communication: average(communication),
		Technical:     average(technical),
		Leadership:    average(leadership),
		Overall:       average(overall),
	}
	out.Summary = summaryText(out)
	return out
}

func summaryText(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Peer Review Summary (%d reviews):\n\n", s.ReviewCount)
	b.WriteString("Average Ratings:\n")
	fmt.Fprintf(&b, "- Collaboration: %s\n", ratingText(s.Averages.Collaboration))
	fmt.Fprintf(&b, "- Communication: %s\n", ratingText(s.Averages.Communication))
	fmt.Fprintf(&b, "- Technical Skills: %s\n", ratingText(s.Averages.Technical))
	fmt.Fprintf(&b, "- Leadership: %s\n", ratingText(s.Averages.Leadership))
	writeSection(&b, "STRENGTHS", s.Strengths)
	writeSection(&b, "WEAKNESSES", s.Weaknesses)
	writeSection(&b, "SUGGESTIONS", s.Suggestions)
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, line := range lines {
		fmt.Fprintf(b, "- %s\n", line)
	}
}

func ratingText(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f/5", *v)
}

func appendSet(values []int, v *int) []int {
	if v == nil {
		return values
	}
	return append(values, *v)
}

func appendText(lines []string, text string) []string {
	if text = strings.TrimSpace(text); text == "" {
		return lines
	}
	return append(lines, text)
}

// average is rounded to one decimal; nil when nothing is rated.
func average(values []int) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	avg := math.Round(float64(sum)/float64(len(values))*10) / 10
	return &avg
}
