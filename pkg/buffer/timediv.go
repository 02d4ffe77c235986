/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package buffer

// TimeDivSamples maps a time/div index to a window length in samples.
// The table is not monotonic (index 8 is 1923) and is kept as the
// firmware expects it.
var TimeDivSamples = [...]int{
	50, 100, 250, 500, 1000, 1250, 1667, 2000, 1923, 2000,
	2000, 2000, 2000, 2000, 2000, 2000, 2000, 2000, 2000, 2000,
	5000, 10000, 20000, 50000,
}

// MaxTimeDiv is the largest valid time/div index
const MaxTimeDiv = len(TimeDivSamples) - 1

// ClampTimeDiv limits div to [0, MaxTimeDiv]
func ClampTimeDiv(div int) int {
	if div < 0 {
		return 0
	}
	if div > MaxTimeDiv {
		return MaxTimeDiv
	}
	return div
}

// WindowLength returns the number of samples shown at time/div index div
func WindowLength(div int) int {
	return TimeDivSamples[ClampTimeDiv(div)]
}
