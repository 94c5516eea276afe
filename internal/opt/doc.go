// Package opt implements the route optimizer: a (mu+lambda) genetic
// algorithm over permutations that approximates the shortest open path
// visiting every point once.
//
// Offspring come from ordered crossover, shuffle-indexes mutation or plain
// reproduction of tournament-selected parents; survivors are the best mu of
// parents and offspring combined, so the best route never regresses. A
// size-1 hall of fame holds the best individual ever evaluated.
//
// The search is a pure function of its points, distance provider and
// Config: there is no package-level state, and a fixed Config.Seed makes a
// run reproducible.
package opt
