// Provides platform-appropriate paths for cruxenv.
//
// Paths follow XDG conventions on Linux and platform-native conventions on
// macOS. The program name "cruxenv" is used as the subdirectory under each
// base path. Nothing here creates directories; callers do that on demand.
package paths
