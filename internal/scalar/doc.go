// Package scalar provides the value model shared by the compiler and the
// runtime: sealed scalar types, numeric promotion, ordering and arithmetic.
//
// Key design constraints:
//   - Only Null, Int, Float, String and Bool implement Value
//   - Int op Int stays Int; any Float operand promotes the result to Float
//   - Ordering is defined for numeric values only; String and Bool support
//     equality alone
//   - Trace output uses MarshalCanonical for byte-stable golden comparison
package scalar
