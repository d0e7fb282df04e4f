// Package host provides the execution substrate the contract runs on: a
// transactional runtime that serializes calls and commits their effects
// atomically, a correlation registry that parks calls behind 32-byte yield
// ids until they are resumed or time out, and a broker that broadcasts the
// events committed calls emit.
package host
