package database

import (
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// NewSupabase returns a Supabase client authenticated with the service key.
// The client is stateless; no connection is made until the first query.
func NewSupabase(url, key string) (*supabase.Client, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return client, nil
}
