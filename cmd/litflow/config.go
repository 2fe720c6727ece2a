// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/litflow/pkg/types"
)

// setDefaults registers every configuration key with its default so that
// LITFLOW_* environment variables resolve even without a config file.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("retrieval.source", d.Retrieval.Source)
	v.SetDefault("retrieval.timeout", d.Retrieval.Timeout)
	v.SetDefault("retrieval.user_agent", d.Retrieval.UserAgent)
	v.SetDefault("retrieval.max_concurrency", d.Retrieval.MaxConcurrency)
	v.SetDefault("retrieval.requests_per_second", d.Retrieval.RequestsPerSecond)
	v.SetDefault("retrieval.max_attempts", d.Retrieval.MaxAttempts)
	v.SetDefault("retrieval.backoff_base", d.Retrieval.BackoffBase)
	v.SetDefault("retrieval.backoff_max", d.Retrieval.BackoffMax)
	v.SetDefault("retrieval.pubmed_email", d.Retrieval.PubMedEmail)
	v.SetDefault("retrieval.pubmed_api_key", d.Retrieval.PubMedAPIKey)
	v.SetDefault("retrieval.embase_api_key", d.Retrieval.EmbaseAPIKey)
	v.SetDefault("retrieval.embase_insttoken", d.Retrieval.EmbaseInstToken)
	v.SetDefault("retrieval.semantic_scholar_api_key", d.Retrieval.SemanticScholarAPIKey)
	v.SetDefault("retrieval.openalex_email", d.Retrieval.OpenAlexEmail)

	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.temperature", d.AI.Temperature)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)

	v.SetDefault("summarization.enabled", d.Summarization.Enabled)
	v.SetDefault("summarization.concurrency", d.Summarization.Concurrency)
	v.SetDefault("summarization.timeout", d.Summarization.Timeout)

	v.SetDefault("workflow.direction_count", d.Workflow.DirectionCount)
	v.SetDefault("workflow.max_results", d.Workflow.MaxResults)
	v.SetDefault("workflow.years", d.Workflow.Years)
	v.SetDefault("workflow.max_rewrites", d.Workflow.MaxRewrites)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.run_retention", d.Server.RunRetention)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// loadConfig decodes v over the defaults.
func loadConfig(v *viper.Viper) (types.Config, error) {
	c := types.DefaultConfig()
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}
