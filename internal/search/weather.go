// internal/search/weather.go
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/operant/api/schemas"
)

// WeatherInfo is the condensed weather answer lifted from a results page.
type WeatherInfo struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// WeatherReport is the outcome of a weather lookup: the best answer found
// plus the leading organic results for context.
type WeatherReport struct {
	Location   string                  `json:"location"`
	EngineUsed schemas.SearchEngine    `json:"engine_used"`
	Info       *WeatherInfo            `json:"weather_info,omitempty"`
	Organic    []schemas.OrganicResult `json:"organic_results"`
}

// Weather resolves current weather for a location through the regular
// fallback sequence. The featured snippet is preferred; failing that, the
// first organic result whose title mentions weather, forecast, or
// temperature is used. Language and region override the configured values
// when non-empty.
func (c *Controller) Weather(ctx context.Context, location, language, region string) (*WeatherReport, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("weather lookup needs a location")
	}

	req := c.cfg.Request("weather in " + location)
	req.ContentType = schemas.ContentWeb
	if language != "" {
		req.Language = language
	}
	if region != "" {
		req.Region = region
	}

	result, err := c.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &WeatherReport{Location: location, EngineUsed: result.EngineUsed}
	if result.Featured != nil {
		report.Info = &WeatherInfo{
			Title:   result.Featured.Title,
			Content: result.Featured.Content,
			Source:  result.Featured.SourceURL,
		}
	} else {
		for _, organic := range result.Organic {
			title := strings.ToLower(organic.Title)
			if strings.Contains(title, "weather") || strings.Contains(title, "forecast") || strings.Contains(title, "temperature") {
				report.Info = &WeatherInfo{Title: organic.Title, Content: organic.Snippet, Source: organic.URL}
				break
			}
		}
	}

	organic := result.Organic
	if len(organic) > 5 {
		organic = organic[:5]
	}
	report.Organic = organic
	return report, nil
}
