// Package routes classifies navigation paths into access classes that
// drive the session resolution pipeline: plain public paths render with
// no identity work, background-check paths render immediately while an
// identity probe runs behind them, and protected paths block until the
// visitor is known.
//
// Classification is pure: the same table and the same path always yield
// the same class, and classifying never touches the network, the cache,
// or any shared state.
package routes
