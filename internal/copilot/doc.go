// Package copilot is the conversation client for Microsoft Copilot Studio.
//
// # Overview
//
// The client speaks the direct-to-engine conversation API: activities are
// posted as JSON and responses stream back as Server-Sent Events, each frame
// carrying one activity. The package converts those wire activities into a
// typed Event variant that the rest of the application folds into UI state.
//
// # Lifecycle
//
//	client, _ := copilot.New(copilot.Options{
//	    EnvironmentID:   cfg.EnvironmentID,
//	    AgentIdentifier: cfg.AgentIdentifier,
//	    Token:           accessToken,
//	})
//	greeting, _ := client.StartConversation(ctx)
//	events, _ := client.SendMessage(ctx, "hello")
//	for ev := range events { ... }
//
// The conversation handle returned by the endpoint is held on the client for
// its whole lifetime; starting a new conversation means constructing a new
// client. One send is in flight at a time per client.
//
// # Event ordering
//
// Events are delivered in activity arrival order. Content deltas concatenated
// in that order reproduce the final response text exactly.
package copilot
