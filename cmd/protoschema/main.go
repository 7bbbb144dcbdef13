package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"blockroom/internal/net/proto"
)

type payload struct {
	event string
	value any
}

var intents = []payload{
	{proto.EventJoin, proto.Join{}},
	{proto.EventStartGame, proto.StartGame{}},
	{proto.EventChangeMode, proto.ChangeMode{}},
	{proto.EventMove, proto.Move{}},
	{proto.EventDrop, proto.Drop{}},
	{proto.EventHardDrop, proto.HardDrop{}},
	{proto.EventRotate, proto.Rotate{}},
	{proto.EventReset, proto.Reset{}},
	{proto.EventSendMessage, proto.SendMessage{}},
	{proto.EventLeave, proto.Leave{}},
}

var broadcasts = []payload{
	{proto.EventChat, proto.ChatMessage{}},
	{proto.EventJoined, proto.Joined{}},
	{proto.EventGameStarted, proto.GameStarted{}},
	{"player-move|player-rotate|player-drop|player-reset", proto.PlayerDelta{}},
	{proto.EventPlayerReady, proto.PlayerReady{}},
	{proto.EventPlayerOut, proto.PlayerOut{}},
	{proto.EventModeChanged, proto.ModeChanged{}},
	{proto.EventRoundEnd, proto.RoundEnd{}},
	{proto.EventIntentRejected, proto.IntentRejected{}},
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Block Room Protocol",
		Description: fmt.Sprintf("Payloads carried in the {event, seq, payload} envelope, protocol version %d.", proto.Version),
		OneOf: []*jsonschema.Schema{
			group(&reflector, "Client intents", intents),
			group(&reflector, "Server broadcasts", broadcasts),
		},
	}
}

func group(reflector *jsonschema.Reflector, title string, payloads []payload) *jsonschema.Schema {
	variants := make([]*jsonschema.Schema, 0, len(payloads))
	for _, p := range payloads {
		schema := reflector.ReflectFromType(reflect.TypeOf(p.value))
		schema.Version = ""
		schema.Title = p.event
		variants = append(variants, schema)
	}
	return &jsonschema.Schema{Title: title, OneOf: variants}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
