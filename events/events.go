package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const SubjectPostCreated = "post.created"

type PostCreatedEvent struct {
	PostID       uint   `json:"post_id"`
	AuthorID     int    `json:"author_id"`
	IsPublic     bool   `json:"is_public"`
	PreviewCount int    `json:"preview_count"`
	Timestamp    string `json:"timestamp"`
}

// Publisher announces content changes to other processes.
type Publisher interface {
	PostCreated(post *models.Post) error
	Close()
}

// Connect returns a NATS publisher, or a no-op one when url is empty or
// the server cannot be reached.
func Connect(url string) Publisher {
	if url == "" {
		return Noop{}
	}

	nc, err := nats.Connect(url, nats.Name("sns"), nats.Timeout(3*time.Second))
	if err != nil {
		log.Printf("NATS unavailable at %s, post events disabled: %v", url, err)
		return Noop{}
	}

	log.Println("NATS connected successfully")
	return &NATSPublisher{conn: nc}
}

type NATSPublisher struct {
	conn *nats.Conn
}

func (p *NATSPublisher) PostCreated(post *models.Post) error {
	payload, err := json.Marshal(NewPostCreatedEvent(post))
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}
	return p.conn.Publish(SubjectPostCreated, payload)
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Printf("drain NATS connection: %v", err)
	}
}

func NewPostCreatedEvent(post *models.Post) PostCreatedEvent {
	return PostCreatedEvent{
		PostID:       post.ID,
		AuthorID:     post.AuthorID,
		IsPublic:     post.IsPublic,
		PreviewCount: len(post.Previews),
		Timestamp:    post.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type Noop struct{}

func (Noop) PostCreated(*models.Post) error { return nil }

func (Noop) Close() {}
