// Package dtw computes Dynamic Time Warping distances between multivariate
// sequences.
//
// The cost table follows the classic recurrence
//
//	D[0][0] = 0, D[i][0] = D[0][j] = +Inf
//	D[i][j] = |a[i-1] - b[j-1]| + min(D[i-1][j], D[i][j-1], D[i-1][j-1])
//
// where |.| is the Euclidean norm of the frame difference. Distance keeps two
// rows when no path is needed; Align keeps the full table so the warping
// path can be recovered.
//
// Complexity is O(n*m) time. Memory is O(m) for TwoRows and O(n*m) for
// FullMatrix.
package dtw
