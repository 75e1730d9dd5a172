// Package pose provides the transform value type shared by every stage of
// the retargeting pipeline, the quaternion and vector helpers built on gonum,
// and the conversions between world-space and parent-relative pose arrays.
//
// Skeletons are modelled as parallel arrays indexed by joint id. A Hierarchy
// wraps the parent-index array, validates it once, and caches a topological
// order so that conversions are correct whether or not parents precede their
// children in the array.
package pose
