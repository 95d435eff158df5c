// Package store holds the Flux stores: listeners that own application state,
// apply dispatched actions to it, and announce changes on the events hub.
//
// A store never dispatches from inside its listener; views react to the
// change feed and dispatch new actions from outside the round.
package store
