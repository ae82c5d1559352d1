package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/makgunay/claude-swift-skills/pkg/telemetry"
	"github.com/makgunay/claude-swift-skills/pkg/version"
)

func initTracing(ctx context.Context) (func(context.Context) error, error) {
	tc := cfg.Tracing
	tc.ServiceVersion = version.Get().Version
	return telemetry.InitTracer(ctx, tc)
}

// withTracing wraps a command's RunE in a cli.command span carrying the
// flags the user set.
func withTracing(cmd *cobra.Command) *cobra.Command {
	run := cmd.RunE

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		attrs := []attribute.KeyValue{
			attribute.String("command.name", cmd.Name()),
			attribute.String("command.path", cmd.CommandPath()),
			attribute.Int("args.count", len(args)),
		}
		cmd.Flags().Visit(func(flag *pflag.Flag) {
			attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
		})

		ctx, span := telemetry.Tracer("skillkeeper.cli").Start(cmd.Context(), "cli.command", trace.WithAttributes(attrs...))
		defer span.End()
		cmd.SetContext(ctx)

		if err := run(cmd, args); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}

	return cmd
}
