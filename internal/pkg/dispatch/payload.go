package dispatch

import (
	"time"

	"github.com/ManuelReschke/TickerFox/app/models"
)

const (
	defaultArticleTitle = "News Update"
	defaultArticleURL   = "#"
)

// Payload is the JSON body the hub posts for a track feed.
type Payload struct {
	Status *PayloadStatus `json:"status"`
	Items  []Item         `json:"items"`
}

type PayloadStatus struct {
	Code int    `json:"code"`
	Feed string `json:"feed"`
}

// Item is one entry of a delivery. Published is a unix timestamp in seconds.
type Item struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	PermalinkURL string `json:"permalinkUrl"`
	Published    int64  `json:"published"`
	Actor        *Actor `json:"actor"`
}

type Actor struct {
	DisplayName string `json:"displayName"`
}

// Topic returns the feed the delivery belongs to.
func (p Payload) Topic() string {
	if p.Status == nil {
		return ""
	}
	return p.Status.Feed
}

// Article converts an item to the channel-neutral article shape.
func (it Item) Article() models.NotificationArticle {
	a := models.NotificationArticle{
		ID:      it.ID,
		Title:   it.Title,
		Summary: it.Summary,
		URL:     it.PermalinkURL,
	}
	if a.Title == "" {
		a.Title = defaultArticleTitle
	}
	if a.URL == "" {
		a.URL = defaultArticleURL
	}
	if it.Actor != nil {
		a.Source = it.Actor.DisplayName
	}
	if it.Published > 0 {
		t := time.Unix(it.Published, 0).UTC()
		a.PublishedAt = &t
	}
	return a
}
