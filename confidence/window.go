// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package confidence implements the streaming group-confidence primitives:
// the effective-window sizing function and the moving-average window that
// tracks it token by token.
package confidence

// EffectiveWindow computes the group-confidence window size for a trace
// that has emitted tokensSeen tokens so far.
//
// ctxLimit is the provider's reported context window in tokens, or 0 if
// unknown (absoluteCap is used in its place). The window never exceeds
// half of whichever limit applies — the halving reserves space for KV
// cache and output buffers and must not be dropped. During warmup the
// window ramps linearly with tokensSeen until it reaches the hard cap,
// then stays constant.
func EffectiveWindow(target, ctxLimit, tokensSeen, minEffective, absoluteCap int) int {
	ctx := ctxLimit
	if ctx <= 0 {
		ctx = absoluteCap
	}
	halfCtx := ctx / 2

	ctxCap := min(absoluteCap, halfCtx)
	if ctxCap < minEffective {
		ctxCap = minEffective
	}

	hardCap := min(target, ctxCap)
	if hardCap < minEffective {
		hardCap = minEffective
	}

	seen := tokensSeen
	if seen < minEffective {
		seen = minEffective
	}

	eff := min(hardCap, seen)
	if eff < minEffective {
		eff = minEffective
	}
	return eff
}
