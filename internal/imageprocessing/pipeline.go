package imageprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pipeline executes a sequence of commands on image data
type Pipeline struct {
	commands []Command
}

// NewPipeline creates a pipeline from already constructed commands
func NewPipeline(commands ...Command) *Pipeline {
	return &Pipeline{
		commands: commands,
	}
}

// NewPipelineFromConfig creates every configured command through the registry
func NewPipelineFromConfig(registry *CommandRegistry, configs []CommandConfig) (*Pipeline, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		slog.Debug("creating command",
			"index", i,
			"command_name", config.Name,
			"params", config.Params)

		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewPipeline(commands...), nil
}

// Len returns the number of commands in the pipeline
func (p *Pipeline) Len() int {
	return len(p.commands)
}

// Execute applies all commands in sequence to the image data.
// The context is checked between commands.
func (p *Pipeline) Execute(ctx context.Context, imageData []byte) ([]byte, error) {
	start := time.Now()

	slog.Debug("starting image processing pipeline",
		"command_count", len(p.commands),
		"input_size_bytes", len(imageData))

	if len(p.commands) == 0 {
		return imageData, nil
	}

	currentData := imageData

	for idx, command := range p.commands {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("image processing cancelled before %s: %w", command.Name(), err)
		}
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Info("image processing pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(p.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}

// ExecuteCommands builds the configured commands from the default registry and runs them
func ExecuteCommands(ctx context.Context, imageData []byte, configs []CommandConfig) ([]byte, error) {
	pipeline, err := NewPipelineFromConfig(DefaultRegistry, configs)
	if err != nil {
		return nil, err
	}
	return pipeline.Execute(ctx, imageData)
}
