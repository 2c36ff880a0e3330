// Package epi implements a stochastic agent-based epidemic model with a
// daily timestep. A Sim owns a population of agents, advances
// transmission and disease progression day by day, applies interventions
// (testing, vaccination), and accumulates per-day result series that can
// be fitted against observed data.
package epi
