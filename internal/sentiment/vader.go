// Package sentiment scores, classifies and extracts topics from review text.
package sentiment

import (
	"html"
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

const (
	MinScore = 1
	MaxScore = 5
)

var (
	analyzer    = govader.NewSentimentIntensityAnalyzer()
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

type Result struct {
	Score   int
	Label   string
	Summary string
}

// PlainText strips markdown, HTML tags and links from review text.
func PlainText(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1")
	out := blackfriday.Run([]byte(input),
		blackfriday.WithNoExtensions(),
		blackfriday.WithRenderer(blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{})))
	text := html.UnescapeString(tagPattern.ReplaceAllString(string(out), " "))
	text = urlPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Score rates text on the 1 (very negative) to 5 (very positive) scale.
func Score(text string) Result {
	compound := analyzer.PolarityScores(PlainText(text)).Compound
	score := int(math.Round((compound+1)*2)) + 1
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	return Result{Score: score, Label: labelFor(score), Summary: summaryFor(score)}
}

func labelFor(score int) string {
	switch {
	case score <= 2:
		return "negative"
	case score >= 4:
		return "positive"
	}
	return "neutral"
}

func summaryFor(score int) string {
	switch score {
	case 1:
		return "The reviewer is very unhappy with their experience."
	case 2:
		return "The reviewer is mostly dissatisfied."
	case 3:
		return "The reviewer has mixed or neutral feelings."
	case 4:
		return "The reviewer is mostly satisfied."
	}
	return "The reviewer is delighted with their experience."
}
