// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/prediction-proxy/pkg/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("prediction proxy exited")
	}
}
