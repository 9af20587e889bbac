package provider

import "fmt"

// DefaultUser is the upstream identity used when neither the caller nor the
// configuration supplies one.
const DefaultUser = "default_user"

// ToUpstreamRequest translates an ordered OpenAI message list into the
// upstream's single-query-plus-history shape:
//  1. the last message's content becomes the query
//  2. every earlier message is copied, in order, into the history
//  3. user falls back to DefaultUser when empty
//
// Contents are copied verbatim; roles are not remapped. An empty message list
// has no query and fails with ErrInvalidRequest.
func ToUpstreamRequest(msgs []Message, user string, stream bool) (*UpstreamRequest, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}

	if user == "" {
		user = DefaultUser
	}

	last := len(msgs) - 1
	history := make([]Message, 0, last)
	for _, m := range msgs[:last] {
		history = append(history, Message{Role: m.Role, Content: m.Content})
	}

	return &UpstreamRequest{
		User:    user,
		Query:   msgs[last].Content,
		History: history,
		Stream:  stream,
	}, nil
}
