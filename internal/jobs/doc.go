// Package jobs provides the durable job queue that drives asynchronous track
// analysis. Jobs for the same partition key execute in publish order and never
// overlap; failed handlers are retried with exponential backoff up to a fixed
// attempt cap, after which the job is terminal.
package jobs
