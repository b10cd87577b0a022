package bqpipeline

import (
	"fmt"
	"time"
)

// Event is a finalize event of a Cloud Storage object.
type Event struct {
	Name        string    `json:"name"`
	Bucket      string    `json:"bucket"`
	ContentType string    `json:"contentType"`
	Size        string    `json:"size"`
	Updated     time.Time `json:"updated"`
}

// FullPath returns full path of storage object beginning with gs://.
func (e Event) FullPath() string {
	return fmt.Sprintf("%s%s/%s", gcsScheme, e.Bucket, e.Name)
}
